package social

import (
	"google.golang.org/grpc"

	"github.com/oggyb/soundmatch/internal/app"
	engine "github.com/oggyb/soundmatch/internal/social"
)

// Registrar ties the Social service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
	engine *engine.Engine
}

// NewRegistrar creates a new Registrar for the Social service
func NewRegistrar(appCtx *app.AppContext, e *engine.Engine) *Registrar {
	return &Registrar{appCtx: appCtx, engine: e}
}

// Register attaches the Social service implementation to the gRPC server
func (r *Registrar) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(Desc.ServiceDesc(), NewSocialService(r.appCtx, r.engine))
	r.appCtx.Logger.Debug("service registered", "service", ServiceName, "methods", Desc.Methods())
}

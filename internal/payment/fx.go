package payment

import (
	"github.com/undangly/undangly/internal/payment/domain"
	"github.com/undangly/undangly/internal/payment/gateway"
	"github.com/undangly/undangly/internal/payment/repository"
	"github.com/undangly/undangly/internal/payment/service"
	"github.com/undangly/undangly/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(gateway.NewSnapClient, fx.As(new(domain.Gateway)))),
	fx.Provide(service.New),
	fx.Provide(webhook.New),
)

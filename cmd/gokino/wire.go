//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/config"
)

func initServerApp(cfg *config.Config, logger *logrus.Logger) (*serverApp, func(), error) {
	wire.Build(serverSet)
	return nil, nil, nil
}

func initClientApp(cfg *config.Config, logger *logrus.Logger) (*clientApp, func(), error) {
	wire.Build(clientSet)
	return nil, nil, nil
}

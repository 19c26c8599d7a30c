package logger

import (
	"bookingengine/internal/config"

	"go.uber.org/zap"
)

// New builds the application logger: JSON in production, console otherwise.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Enable Caller to get Function Name
	zapConfig.EncoderConfig.FunctionKey = "func"

	return zapConfig.Build(zap.AddCaller(), zap.Fields(zap.String("env", cfg.Environment)))
}

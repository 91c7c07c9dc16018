package app

import "phantom/internal/config"

// SetEngine persists the default engine for future invocations. The file on
// disk is edited, so a --engine override of this process is not saved.
func (s *Service) SetEngine(kind string, command []string) (config.EngineConfig, error) {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return config.EngineConfig{}, err
	}
	if err := config.SetEngine(&cfg, kind, command); err != nil {
		return config.EngineConfig{}, err
	}
	if err := config.Save(s.ConfigPath, cfg); err != nil {
		return config.EngineConfig{}, err
	}
	s.Config.Engine = cfg.Engine
	return cfg.Engine, nil
}

func (s *Service) SetLogging(level, format string) (config.LoggingConfig, error) {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return config.LoggingConfig{}, err
	}
	if err := config.SetLogging(&cfg, level, format); err != nil {
		return config.LoggingConfig{}, err
	}
	if err := config.Save(s.ConfigPath, cfg); err != nil {
		return config.LoggingConfig{}, err
	}
	s.Config.Logging = cfg.Logging
	return cfg.Logging, nil
}

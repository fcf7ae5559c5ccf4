package handler

import (
	"hzbot/internal/app/cache"
	"hzbot/internal/app/connector/local"
	"hzbot/internal/configs"
)

// AppDeps are the components the HTTP handlers use.
type AppDeps struct {
	Config *configs.AppConfig
	Cache  *cache.Cache
	Local  *local.Manager
}

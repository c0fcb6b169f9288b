/*
Copyright 2025 Nordvend Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nordvend/pant"
	"github.com/nordvend/pant/api/middleware"
	"github.com/nordvend/pant/config"
)

type Api struct {
	pant   *pant.Pant
	router *gin.Engine
}

// Router registers the REST routes.
func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/transactions", a.CreateTransaction)
	router.POST("/jobs/:name", a.TriggerJob)
	return a.router
}

// NewAPI builds the REST surface over the pipeline service. Authentication
// is enabled whenever a server secret is configured.
func NewAPI(p *pant.Pant) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.SecretKey != "" {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{pant: p, router: r}
}

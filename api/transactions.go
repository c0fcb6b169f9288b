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
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/nordvend/pant/api/model"
	"github.com/nordvend/pant/model"
)

// CreateTransaction ingests one wire transaction. Duplicates answer 409,
// validation findings answer 400 with the finding list, accepted units
// answer 201.
func (a Api) CreateTransaction(c *gin.Context) {
	var req model2.CreateTransaction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := req.ToRecord()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, findings, err := a.pant.IngestWireTransaction(c.Request.Context(), req.CompanyNumber, req.Number, rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch outcome {
	case model.OutcomeAlreadyExists:
		c.JSON(http.StatusConflict, gin.H{"outcome": outcome, "number": req.Number})
	case model.OutcomeRejected:
		c.JSON(http.StatusBadRequest, gin.H{"outcome": outcome, "number": req.Number, "importMessages": findings})
	default:
		c.JSON(http.StatusCreated, gin.H{"outcome": outcome, "number": req.Number})
	}
}

// TriggerJob publishes an on-demand run of a named scanner job. Without a
// broker the job runs inline.
func (a Api) TriggerJob(c *gin.Context) {
	name, passed := c.Params.Get("name")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job name is required. pass it in the route /jobs/:name"})
		return
	}
	jobName := "job:" + name

	if q := a.pant.Queue(); q != nil {
		if err := q.TriggerJob(c.Request.Context(), jobName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job": jobName})
		return
	}
	if err := a.pant.RunJob(c.Request.Context(), jobName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": jobName})
}

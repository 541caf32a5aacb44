// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/folio/services/orchestrator/handlers"
)

// SetupRoutes registers every HTTP route of the orchestrator.
//
// The streaming chat handler carries its own dependencies; the Weaviate
// client is only needed by the document administration routes and may
// be nil, in which case those routes are not registered.
func SetupRoutes(router *gin.Engine, chatHandler handlers.StreamingChatHandler,
	weaviateClient *weaviate.Client) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat/stream", chatHandler.HandleChatStream)
		v1.GET("/chat/ws", chatHandler.HandleChatWS)

		if weaviateClient != nil {
			v1.POST("/documents", handlers.CreateDocument(weaviateClient))
			v1.GET("/documents", handlers.ListDocuments(weaviateClient))
			v1.DELETE("/document", handlers.DeleteBySource(weaviateClient))
		}
	}
}

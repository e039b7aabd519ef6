// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Body Limit Tests
// =============================================================================

func bodyLimitRouter(maxBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BodyLimitMiddleware(maxBytes))
	router.POST("/x", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestBodyLimit_UnderCapPasses(t *testing.T) {
	router := bodyLimitRouter(16)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/x", strings.NewReader("small body")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBodyLimit_OverCapFailsInRead(t *testing.T) {
	router := bodyLimitRouter(16)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/x",
		strings.NewReader(strings.Repeat("a", 64))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBodyLimit_ZeroUsesDefault(t *testing.T) {
	router := bodyLimitRouter(0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/x",
		strings.NewReader(strings.Repeat("a", 1024))))
	assert.Equal(t, http.StatusOK, w.Code)
}

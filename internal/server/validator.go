package server

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
)

// requestValidator はリクエストをOpenAPI定義で検証する
//
// 定義にないパスはそのまま通し、ルーティングはginに任せる。
func requestValidator(doc *openapi3.T) (gin.HandlerFunc, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("OpenAPIルーターの作成に失敗: %w", err)
	}
	return validateWith(router), nil
}

func validateWith(router routers.Router) gin.HandlerFunc {
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			respondBadRequest(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

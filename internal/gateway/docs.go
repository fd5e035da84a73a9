package gateway

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-yaml"
)

// openAPIYAML はゲートウェイが公開するAPIのOpenAPI定義。
//
//go:embed openapi.yaml
var openAPIYAML []byte

// swaggerUIPage は/api-docs.jsonを読み込むSwagger UIのページ。
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>ordermesh API Documentation</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>.swagger-ui .topbar { display: none }</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = () => {
      window.ui = SwaggerUIBundle({ url: "/api-docs.json", dom_id: "#swagger-ui" });
    };
  </script>
</body>
</html>
`

// loadOpenAPI は埋め込みのOpenAPI定義をJSONに変換する。
func loadOpenAPI() ([]byte, error) {
	b, err := yaml.YAMLToJSON(openAPIYAML)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の変換に失敗: %w", err)
	}
	return b, nil
}

// handleDocsJSON はOpenAPI定義をJSONで返すハンドラを返す。
// ツールがそのまま読めるよう、エンベロープには包まない。
func handleDocsJSON(doc []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
	}
}

// handleDocsUI はSwagger UIのページを返すハンドラを返す。
func handleDocsUI() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerUIPage))
	}
}

package swagger

import _ "embed"

// OpenAPI is the document describing the /items API, served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte

package middleware

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
)

// writeJSONError writes a JSON-encoded error response with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

var rejectionPage = template.Must(template.New("rejection").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0, maximum-scale=1.0">
<title>{{.}}</title>
</head>
<body>
<h1 style="color:red;text-align:center;margin-top:2rem">{{.}}</h1>
</body>
</html>
`))

// navigationRoute reports whether path is opened by the browser itself
// (checkout redirects, the gateway callback, file links) rather than by
// page scripts.
func navigationRoute(path string) bool {
	return strings.HasPrefix(path, "/v1/payment/") || strings.HasPrefix(path, "/v1/files/")
}

// writeRejection answers with an HTML page on navigation routes and with the
// JSON error envelope everywhere else.
func writeRejection(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if !navigationRoute(r.URL.Path) {
		writeJSONError(w, status, msg)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = rejectionPage.Execute(w, msg)
}

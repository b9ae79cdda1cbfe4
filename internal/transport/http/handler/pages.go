package handler

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var pages = template.Must(template.New("pages").Parse(`
{{define "error"}}<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0, maximum-scale=1.0">
<title>{{.Title}}</title>
</head>
<body>
<h1 style="color:red;text-align:center;margin-top:2rem">{{.Title}}</h1>
{{if .Detail}}<h2 style="color:#444;text-align:center;margin-top:10px">{{.Detail}}</h2>{{end}}
</body>
</html>
{{end}}
{{define "success"}}<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0, maximum-scale=1.0">
<title>Payment successful</title>
</head>
<body style="width:100%;height:100vh;background-color:#eee;display:flex;align-items:center;justify-content:center">
<div style="text-align:center;font-size:18px;width:330px;border:1px solid #ddd;border-radius:4px;background-color:#f4f4f4;padding:1rem">
<h1 style="color:#33e83a">Payment successful</h1>
{{if .Username}}<p>Name: <span style="color:#777">{{.Username}}</span></p>
<p>Email: <span style="color:#777">{{.Email}}</span></p>
{{end}}<p>Product: <span style="color:#777">{{.Product}}</span></p>
<p>Price: <span style="color:#777">{{.Price}}</span></p>
<p>Reference: <span style="color:#777">{{.RefID}}</span></p>
<a href="{{.Link}}" style="border:1px solid #09b;border-radius:4px;padding:2px 5px;color:#09b;font-size:13px;text-decoration:none">Back to the course</a>
</div>
</body>
</html>
{{end}}`))

type errorPage struct {
	Title  string
	Detail string
}

type successPage struct {
	Username string
	Email    string
	Product  string
	Price    int64
	RefID    string
	Link     string
}

// Titles of the pages the payment callback can land on.
const (
	pageNotPaid   = "Payment was not completed"
	pageCheckPaid = "Check whether the payment was made"
	pageUnknown   = "An unknown error occurred"
	pageRetry     = "The request did not reach the server, please try again"
)

func renderPage(w http.ResponseWriter, log *zap.Logger, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		log.Error("render page", zap.String("page", name), zap.Error(err))
	}
}

func renderError(w http.ResponseWriter, log *zap.Logger, status int, title, detail string) {
	renderPage(w, log, status, "error", errorPage{Title: title, Detail: detail})
}

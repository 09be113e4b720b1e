package handler

import (
	"net/http"

	"fit-atlas/bootstrap"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var app http.Handler

func init() {
	fiberApp, err := bootstrap.New()
	if err != nil {
		panic("app create: " + err.Error())
	}
	app = adaptor.FiberApp(fiberApp)
}

// Handler is the serverless entry point; the platform rewrites every path here.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()
	app.ServeHTTP(w, r)
}

package main

import (
	"github.com/wacrm/app/cmd"
)

// @title WhatsApp CRM API
// @version 1.0
// @description Multi-session WhatsApp connection manager with a shared inbox.

// @host  localhost:8000
// @BasePath /api/v1

func main() {
	cmd.StartApp()
}

package main

import (
	"github.com/jobmesh-project/jobmesh/cmd/jobmesh"
	_ "github.com/jobmesh-project/jobmesh/pkg/logger"
)

// Value is injected by the build.
var VERSION = "dev"

func main() {
	jobmesh.Execute(VERSION)
}

package api

import (
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
)

func uintParam(c *app.RequestContext, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name+" format")
		return 0, false
	}
	return uint(id), true
}

func uint64Param(c *app.RequestContext, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name+" format")
		return 0, false
	}
	return id, true
}

package http

import (
	"errors"

	convergeerr "github.com/convergeproj/converge/pkg/errors"
)

func MakeAPINotFound(path string) *convergeerr.Error {
	return &convergeerr.Error{
		Type: convergeerr.Missing,
		Help: `The API endpoint requested is not supported by this server.

This indicates that your client (probably convergectl) is either out
of date, or faulty. If you have problems after upgrading, please file
an issue at

    https://github.com/convergeproj/converge/issues

mentioning what you were attempting to do, and include this path:

    ` + path + `
`,
		Err: errors.New("API endpoint not found"),
	}
}

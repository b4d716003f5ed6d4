package catalog

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

// Static serves regular files below root. Requests for anything else,
// directories included, continue down the pipeline.
func Static(root string) pipeline.HandlerFunc {
	return func(c *pipeline.Context, next pipeline.NextFunc) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			next(nil)
			return
		}
		name := filepath.Join(root, filepath.FromSlash(path.Clean("/"+c.Path())))
		info, err := os.Stat(name)
		if err != nil || !info.Mode().IsRegular() {
			next(nil)
			return
		}
		f, err := os.Open(name)
		if err != nil {
			next(err)
			return
		}
		defer f.Close()
		http.ServeContent(c.Response, c.Request, info.Name(), info.ModTime(), f)
	}
}

func staticFactory(params ...any) (any, error) {
	root, err := stringParam(params, 0, "")
	if err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("static: root directory required")
	}
	return Static(root), nil
}

// Package webassets packages the default site that is served when no
// primary content source has the requested page.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// Dir is the directory inside the embedded tree holding the default site.
const Dir = "fallback"

//go:embed fallback
var embedded embed.FS

// FallbackFS returns the default site rooted at its own top level, so
// "index.html" names the home page.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, Dir)
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}


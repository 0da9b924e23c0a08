package sitehandler

import (
	"path"
	"strings"
)

// assetExts are fingerprinted build outputs that never change in place.
var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// cacheControlFor picks the policy from the request path. Directory
// requests and extensionless paths are pages, so they get the HTML policy.
func cacheControlFor(requestPath string, o *Options) string {
	if requestPath == "" || strings.HasSuffix(requestPath, "/") {
		return o.HTMLCacheControl
	}
	ext := strings.ToLower(path.Ext(requestPath))
	switch {
	case ext == "" || ext == ".html" || ext == ".htm":
		return o.HTMLCacheControl
	case assetExts[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}


// Command fngen inspects and exercises the artifact cache of compiled functions.
//
//	fngen ls                       list cached artifacts
//	fngen show NAME                print a manifest
//	fngen source NAME              print generated Go source
//	fngen eval NAME --input 1,2,3  evaluate (optionally --jacobian, --hessian)
//	fngen rm NAME...               remove artifacts
//	fngen purge                    remove every artifact
//
// The cache directory comes from --cache-dir, $FNGEN_CACHE_DIR, a --config
// YAML file (key cache-dir) or the library default, in that order.
package main

import "os"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

/*
Package origin implements the static file server that pods and workers
fall back to: a plain HTTP GET of <root>/<rel>. Grounded on
original_source/pod_cache/origin_server.py, with an explicit path-
containment check added: the reference's translate_path joins the
unquoted request path onto root without verifying containment, which
would let a crafted "../" escape it.
*/
package origin

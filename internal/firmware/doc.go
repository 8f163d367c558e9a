// Package firmware implements the node's firmware update primitive.
//
// Updater.Update downloads an image over HTTP, stages it next to the
// install path, verifies it and atomically renames it into place. An
// optional apply command (flash tool, A/B slot switch) then runs with the
// installed path in NODE_IMAGE_PATH.
//
// # Server Contract
//
// The request carries X-Node-Id and X-Node-Version so the server can
// decide whether the node is already current:
//
//	200  image body (optionally Content-Encoding: gzip)
//	304  nothing newer; reported as node.NoUpdates
//	404  Failed(CodeFileNotFound)
//	401, 403  Failed(CodeForbidden)
//	other  Failed(CodeWrongHTTPCode)
//
// When the response has an X-Image-Blake3 header (hex), the digest of the
// decoded image must match it.
//
// # Error Codes
//
// Failure codes are negative and stable so operators can alert on them.
// See the Code constants.
package firmware

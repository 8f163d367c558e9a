package firmware

// Failure codes reported through node.Outcome.
const (
	// CodeConnectionFailed means the request never got a response.
	CodeConnectionFailed = -1

	// CodeTimeout means the download exceeded its deadline.
	CodeTimeout = -11

	// CodeTooLessSpace means the staged image could not be written.
	CodeTooLessSpace = -100

	// CodeFileNotFound means the server answered 404.
	CodeFileNotFound = -102

	// CodeForbidden means the server answered 401 or 403.
	CodeForbidden = -103

	// CodeWrongHTTPCode means any other unexpected status.
	CodeWrongHTTPCode = -104

	// CodeDigestMismatch means the image digest did not match X-Image-Blake3.
	CodeDigestMismatch = -105

	// CodeBadImage means the body was empty, short, or not valid gzip.
	CodeBadImage = -106

	// CodeInstallFailed means the staged image could not be moved into place.
	CodeInstallFailed = -108

	// CodeApplyFailed means the apply command failed.
	CodeApplyFailed = -110
)

// Response headers understood by the updater.
const (
	HeaderNodeID      = "X-Node-Id"
	HeaderNodeVersion = "X-Node-Version"
	HeaderImageDigest = "X-Image-Blake3"
)

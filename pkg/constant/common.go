package constant

const (
	INVALID_REQUEST          = "Invalid request payload"
	INVALID_PAGE_NUMBER      = "invalid page number"
	PAGE_NUMBER_OUT_OF_RANGE = "page number out of range"
	SOMETHING_WENT_WRONG     = "something went wrong"
	UNAUTHORIZED_ACCESS      = "unauthorized access"
	INVALID_TOKEN            = "Invalid or expired token"
	TOKEN_EXPIRED            = "Token has expired"
)

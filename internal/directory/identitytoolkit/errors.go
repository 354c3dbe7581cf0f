package identitytoolkit

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/neudinger/acctmigrate/internal/directory"
)

// API error codes that map onto directory sentinels. The API reports them as
// the message, optionally followed by " : <detail>".
var (
	alreadyExistsCodes = []string{"EMAIL_EXISTS", "DUPLICATE_EMAIL"}
	notFoundCodes      = []string{"USER_NOT_FOUND", "EMAIL_NOT_FOUND"}
)

func hasCode(msg string, codes []string) bool {
	for _, code := range codes {
		if strings.HasPrefix(msg, code) {
			return true
		}
	}
	return false
}

// classify wraps API errors with the matching directory sentinel so callers
// can use errors.Is. Unrecognized errors are returned unchanged.
func classify(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return err
	}
	switch {
	case hasCode(gErr.Message, alreadyExistsCodes):
		return fmt.Errorf("%w: %s", directory.ErrAlreadyExists, gErr.Message)
	case hasCode(gErr.Message, notFoundCodes), gErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", directory.ErrNotFound, gErr.Message)
	}
	return err
}

// IsAuthorisationFailure reports whether err is a rejected credential: a
// Google API 401 or 403, or a token exchange refused by the OAuth2 server.
func IsAuthorisationFailure(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	return gErr.Code == http.StatusUnauthorized || gErr.Code == http.StatusForbidden
}

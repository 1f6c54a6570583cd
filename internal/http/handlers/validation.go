package handlers

import (
	"errors"
	"net/url"
	"time"
)

// parsePage reads offset and limit from the query.
func parsePage(q url.Values) (offset, limit *int, err error) {
	limit, err = parseIntPtr(q.Get("limit"))
	if err != nil {
		return nil, nil, errors.New("invalid limit format")
	}
	if limit != nil && *limit <= 0 {
		return nil, nil, errors.New("limit must be greater than zero")
	}

	offset, err = parseIntPtr(q.Get("offset"))
	if err != nil {
		return nil, nil, errors.New("invalid offset format")
	}
	if offset != nil && *offset < 0 {
		return nil, nil, errors.New("offset must be zero or positive")
	}
	return offset, limit, nil
}

// parseRange reads the since and until RFC3339 bounds from the query.
func parseRange(q url.Values) (since, until *time.Time, err error) {
	if since, err = parseTimePtr(q.Get("since")); err != nil {
		return nil, nil, errors.New("invalid since date format")
	}
	if until, err = parseTimePtr(q.Get("until")); err != nil {
		return nil, nil, errors.New("invalid until date format")
	}
	if since != nil && until != nil && until.Before(*since) {
		return nil, nil, errors.New("until must not be before since")
	}
	return since, until, nil
}

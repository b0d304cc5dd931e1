package learnapi

import (
	"bytes"
	"strconv"

	sonic "github.com/bytedance/sonic"
)

// envelope is the {success, message, data} wrapper every endpoint returns.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type optionItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userItem struct {
	ID    flexibleID `json:"id"`
	Email string     `json:"email"`
}

type uploadData struct {
	URL string `json:"url"`
}

// flexibleID accepts both numeric and string ids.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*f = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := sonic.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n int64
	if err := sonic.Unmarshal(raw, &n); err != nil {
		return err
	}
	*f = flexibleID(strconv.FormatInt(n, 10))
	return nil
}

func (f flexibleID) String() string {
	return string(f)
}

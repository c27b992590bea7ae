package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDownloadLink means a page was fetched but carried no usable link.
	ErrNoDownloadLink = errors.New("no download link found")
	// ErrRecursionLimit means the chase exceeded the hop budget. It also
	// matches ErrNoDownloadLink, since the outcome for the caller is the same.
	ErrRecursionLimit = errors.New("resolution hop limit exceeded")
	// ErrNetwork covers transport faults, timeouts and non-2xx answers.
	ErrNetwork = errors.New("network error")
)

// Kind classifies a resolution failure.
type Kind int

const (
	KindNoDownloadLink Kind = iota + 1
	KindNetwork
	KindRecursionLimit
)

func (k Kind) String() string {
	switch k {
	case KindNoDownloadLink:
		return "no-download-link"
	case KindNetwork:
		return "network"
	case KindRecursionLimit:
		return "recursion-limit"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Failure is the error value carried in Result.Err.
type Failure struct {
	Kind  Kind
	URL   string
	Cause error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindNetwork:
		return fmt.Sprintf("network error fetching %s: %v", f.URL, f.Cause)
	case KindRecursionLimit:
		return fmt.Sprintf("resolution gave up at %s: %v", f.URL, ErrRecursionLimit)
	}
	if f.URL == "" {
		return ErrNoDownloadLink.Error()
	}
	return fmt.Sprintf("%v at %s", ErrNoDownloadLink, f.URL)
}

func (f *Failure) Unwrap() error { return f.Cause }

func (f *Failure) Is(target error) bool {
	switch target {
	case ErrNoDownloadLink:
		return f.Kind == KindNoDownloadLink || f.Kind == KindRecursionLimit
	case ErrRecursionLimit:
		return f.Kind == KindRecursionLimit
	case ErrNetwork:
		return f.Kind == KindNetwork
	}
	return false
}

func noLink(url string) *Failure {
	return &Failure{Kind: KindNoDownloadLink, URL: url}
}

func network(url string, cause error) *Failure {
	return &Failure{Kind: KindNetwork, URL: url, Cause: cause}
}

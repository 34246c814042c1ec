package domain

import "fmt"

// ProviderKind identifies a document provider.
type ProviderKind string

const (
	ProviderGitHub      ProviderKind = "github"
	ProviderGitLab      ProviderKind = "gitlab"
	ProviderBitbucket   ProviderKind = "bitbucket"
	ProviderGoogleDrive ProviderKind = "googledrive"
	ProviderDropbox     ProviderKind = "dropbox"
	ProviderNotion      ProviderKind = "notion"
	ProviderLocalFile   ProviderKind = "localfile"
	ProviderWebURL      ProviderKind = "weburl"
)

// AllProviderKinds lists every supported provider.
func AllProviderKinds() []ProviderKind {
	return []ProviderKind{
		ProviderGitHub,
		ProviderGitLab,
		ProviderBitbucket,
		ProviderGoogleDrive,
		ProviderDropbox,
		ProviderNotion,
		ProviderLocalFile,
		ProviderWebURL,
	}
}

// ParseProviderKind validates a provider name from config or storage.
func ParseProviderKind(s string) (ProviderKind, error) {
	for _, k := range AllProviderKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider kind %q", ErrInvalidConfiguration, s)
}

// String returns the wire name of the provider.
func (k ProviderKind) String() string {
	return string(k)
}

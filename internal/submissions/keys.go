package submissions

import (
	"path"
	"strings"
)

// Object key layout shared by every bucket: {owner}/{submission}/{name}.

// RawAudioKey is where the uploader puts the original recording (private bucket).
func RawAudioKey(ownerID, id, ext string) string {
	return path.Join(ownerID, id, "original"+ext)
}

// PublicAudioKey is where the anonymized recording is published (public bucket).
func PublicAudioKey(ownerID, id string) string {
	return path.Join(ownerID, id, "public.wav")
}

// CoverImageKey is where the uploader puts an optional cover (public bucket).
// ext defaults to .jpg.
func CoverImageKey(ownerID, id, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		ext = ".jpg"
	}
	return path.Join(ownerID, id, "cover"+ext)
}

// OwnsKey reports whether key lives under the submission's {owner}/{id}/ prefix.
func (s *Submission) OwnsKey(key string) bool {
	if key == "" || strings.Contains(key, "\\") || path.IsAbs(key) {
		return false
	}
	prefix := path.Join(s.OwnerID, s.ID) + "/"
	cleaned := path.Clean(key)
	return cleaned == key && strings.HasPrefix(cleaned, prefix) && len(cleaned) > len(prefix)
}

// ArtifactKey addresses an intermediate file in the artifacts bucket.
func ArtifactKey(ownerID, id, name string) string {
	return path.Join(ownerID, id, name)
}

// ObjectKeys lists every object a submission may own, for cancellation purges.
func (s *Submission) ObjectKeys() (private, public, artifacts []string) {
	if s.RawAudioKey != "" {
		private = append(private, s.RawAudioKey)
	}
	if s.PublicAudioKey != "" {
		public = append(public, s.PublicAudioKey)
	}
	if s.CoverImageKey != "" {
		public = append(public, s.CoverImageKey)
	}
	artifacts = []string{
		ArtifactKey(s.OwnerID, s.ID, "normalized.wav"),
		ArtifactKey(s.OwnerID, s.ID, "anonymized.wav"),
	}
	return private, public, artifacts
}

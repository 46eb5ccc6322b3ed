package pipeline

import (
	"testing"
	"time"

	"github.com/edgestream/videocache/internal/domain/model"
)

func TestContentTypeFor_AudioFixupFromVideoMP4(t *testing.T) {
	got := contentTypeFor(model.ModeAudio, "video/mp4")
	if got != "audio/mp4" {
		t.Fatalf("expected audio/mp4, got %q", got)
	}
}

func TestContentTypeFor_NonAudioModeUnchanged(t *testing.T) {
	got := contentTypeFor(model.ModeVideo, "video/mp4")
	if got != "video/mp4" {
		t.Fatalf("expected unchanged content type, got %q", got)
	}
}

func TestContentTypeFor_AudioModeEmptyUpstreamDefaultsToAudioMP4(t *testing.T) {
	got := contentTypeFor(model.ModeAudio, "")
	if got != "audio/mp4" {
		t.Fatalf("expected audio/mp4 fallback, got %q", got)
	}
}

func TestContentTypeFor_AudioModeAlreadyAudioTypeUnchanged(t *testing.T) {
	got := contentTypeFor(model.ModeAudio, "audio/aac")
	if got != "audio/aac" {
		t.Fatalf("expected unchanged audio type, got %q", got)
	}
}

func TestCacheControlFor_StoreIndefinitelyIsImmutable(t *testing.T) {
	got := cacheControlFor(0, true)
	if got != "public, max-age=31536000, immutable" {
		t.Fatalf("unexpected cache-control: %q", got)
	}
}

func TestCacheControlFor_PositiveTTLUsesMaxAge(t *testing.T) {
	got := cacheControlFor(120, false)
	if got != "public, max-age=120" {
		t.Fatalf("unexpected cache-control: %q", got)
	}
}

func TestCacheControlFor_ZeroTTLFallsBackToImmutable(t *testing.T) {
	got := cacheControlFor(0, false)
	if got != "public, max-age=31536000, immutable" {
		t.Fatalf("unexpected cache-control: %q", got)
	}
}

func TestCacheTagHeader_JoinsWithComma(t *testing.T) {
	got := cacheTagHeader([]string{"mode:video", "derivative:mobile"})
	if got != "mode:video,derivative:mobile" {
		t.Fatalf("unexpected cache-tag header: %q", got)
	}
}

func TestAgeAndTTL_ComputesFromEpochMillis(t *testing.T) {
	now := time.Now().UnixMilli()
	createdAt := now - 5000
	expiresAt := now + 55000
	age, ttl := ageAndTTL(createdAt, &expiresAt)
	if age < 4 || age > 6 {
		t.Fatalf("expected age around 5s, got %d", age)
	}
	if ttl < 54 || ttl > 56 {
		t.Fatalf("expected ttl around 55s, got %d", ttl)
	}
}

func TestAgeAndTTL_NoExpiryYieldsZeroTTL(t *testing.T) {
	now := time.Now().UnixMilli()
	age, ttl := ageAndTTL(now, nil)
	if ttl != 0 {
		t.Fatalf("expected zero ttl when no expiry, got %d", ttl)
	}
	if age != 0 {
		t.Fatalf("expected ~zero age, got %d", age)
	}
}

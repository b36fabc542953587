// Package platform describes the per-platform loopback and fallback rules
// used when building endpoint candidates.
package platform

import (
	"fmt"

	"github.com/hamed0406/endpointresolver/internal/domain"
)

// AndroidEmulatorHost is how the Android emulator reaches the host machine.
const AndroidEmulatorHost = "10.0.2.2"

type Provider interface {
	Name() domain.Platform
	// LoopbackHost is the host that reaches a dev server on the same machine.
	LoopbackHost() string
	FallbackURL(port int) string
}

type Web struct{}

func (Web) Name() domain.Platform         { return domain.PlatformWeb }
func (Web) LoopbackHost() string          { return "localhost" }
func (w Web) FallbackURL(port int) string { return loopbackURL(w, port) }

type IOS struct{}

func (IOS) Name() domain.Platform         { return domain.PlatformIOS }
func (IOS) LoopbackHost() string          { return "localhost" }
func (i IOS) FallbackURL(port int) string { return loopbackURL(i, port) }

type Android struct{}

func (Android) Name() domain.Platform         { return domain.PlatformAndroid }
func (Android) LoopbackHost() string          { return AndroidEmulatorHost }
func (a Android) FallbackURL(port int) string { return loopbackURL(a, port) }

// For returns the provider for p; unknown platforms behave like web.
func For(p domain.Platform) Provider {
	switch p {
	case domain.PlatformIOS:
		return IOS{}
	case domain.PlatformAndroid:
		return Android{}
	default:
		return Web{}
	}
}

func loopbackURL(p Provider, port int) string {
	return fmt.Sprintf("http://%s:%d", p.LoopbackHost(), port)
}

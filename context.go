package authgate

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type trustedDeviceContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// on issued refresh tokens, uses it for trusted-device fingerprinting, and
// includes it in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Used by the
// trusted-device registry to build the device fingerprint.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithTrustedDevice attaches a previously issued trusted-device token to ctx.
// When present during Login, a valid token lets the device skip the MFA
// challenge.
func WithTrustedDevice(ctx context.Context, deviceToken string) context.Context {
	return context.WithValue(ctx, trustedDeviceContextKey{}, deviceToken)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func trustedDeviceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	token, _ := ctx.Value(trustedDeviceContextKey{}).(string)
	return token
}

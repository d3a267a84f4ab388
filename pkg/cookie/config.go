package cookie

// Config holds the cookie codec secret as it comes from the environment.
// Generate one with GenerateSecret (or `sessiongc keygen`).
type Config struct {
	Secret string `env:"COOKIE_SECRET,required"`
}

// NewCodecFromConfig decodes the configured secret and builds a Codec.
func NewCodecFromConfig(cfg Config, opts ...CodecOption) (*Codec, error) {
	key, err := DecodeSecret(cfg.Secret)
	if err != nil {
		return nil, err
	}
	return NewCodec(key, opts...)
}

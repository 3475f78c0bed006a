// Package opus turns the relay's PCM broadcast into Opus frames for Discord
// voice playback.
//
// Frames travel between the encoder and the voice senders in a minimal binary
// format: concatenated length-prefixed frames ([uint16 LE length][opus bytes]).
// No headers, no metadata.
//
// Encode transcodes the WAV stream to Opus via FFmpeg and produces
// length-prefixed frames. FrameReader reads them back, and SendFrames hands
// them to a voice connection.
package opus

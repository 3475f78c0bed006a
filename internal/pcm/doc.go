// Package pcm turns live, push-delivered 32-bit float PCM into pull-based
// byte streams framed as WAV.
//
// Every stream starts with a 44 byte header whose size fields hold the
// "unknown length" sentinel 0xFFFFFFFF. Because that is also the largest size
// a WAV file can declare, each stream carries a byte budget and ends with
// io.EOF once the budget is spent. Callers that want an endless broadcast open
// a fresh stream when the previous one ends.
//
// Two sources are provided: TapStream, fed by a subscription to pushed
// chunks, and MonitorStream, fed by the stdout of a local capture process.
package pcm

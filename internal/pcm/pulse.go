package pcm

import (
	"fmt"

	"github.com/jfreymuth/pulse/proto"
)

// LookupSourceFormat asks the PulseAudio server for the native sample spec
// of the named source. An empty server uses the default server.
func LookupSourceFormat(server, source string) (Format, error) {
	client, conn, err := proto.Connect(server)
	if err != nil {
		return Format{}, fmt.Errorf("failed to connect to PulseAudio: %w", err)
	}
	defer conn.Close()

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString(DefaultClientName),
		},
	}
	if err := client.Request(&request, &proto.SetClientNameReply{}); err != nil {
		return Format{}, fmt.Errorf("failed to register with PulseAudio: %w", err)
	}

	reply := proto.GetSourceInfoReply{}
	err = client.Request(&proto.GetSourceInfo{
		SourceIndex: proto.Undefined,
		SourceName:  source,
	}, &reply)
	if err != nil {
		return Format{}, fmt.Errorf("failed to get source info for %q: %w", source, err)
	}

	return Format{
		Channels:   int(reply.Channels),
		SampleRate: int(reply.Rate),
	}, nil
}

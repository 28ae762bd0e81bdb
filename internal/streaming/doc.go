/*
Package streaming implements direct playback: parsing HTTP Range headers and
serving the requested byte window of a media file as 206 Partial Content.

# Range resolution

ParseRange is pure and never touches the filesystem:

	br, err := streaming.ParseRange(r.Header.Get("Range"), info.Size())
	switch {
	case errors.Is(err, streaming.ErrRangeRequired):      // 400
	case errors.Is(err, streaming.ErrRangeNotSatisfiable): // 416 with an unsatisfied Content-Range
	}

Only single "bytes=start-" and "bytes=start-end" forms are accepted. An open
end is bounded to DefaultChunkSize bytes so players that never send an end
offset still receive bounded responses. An end past the file is clamped.

# Serving

FileByteServer.Serve stats and opens the file, resolves the range and streams
exactly End-Start+1 bytes through a TimeoutWriter. The file handle is closed
on every path, including client disconnect.

TimeoutWriter bounds each write with a connection write deadline set through
http.ResponseController, so a client that stops reading fails the write
instead of blocking the handler. Writes stop as soon as the request context
is cancelled.

Errors that occur after the 206 header was sent are returned as *AbortError;
the caller can only log them, since the status line is already committed.
*/
package streaming

package control

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndDecodeRequest(t *testing.T) {
	var buf bytes.Buffer
	req := Request{ID: "r1", Op: OpOpenService, Service: ServiceSSH}
	require.NoError(t, WriteRequest(&buf, req))
	require.True(t, strings.HasSuffix(buf.String(), "\n"))

	r := NewLineReader(&buf)
	line, err := ReadLine(r)
	require.NoError(t, err)

	decoded, err := DecodeRequest(line)
	require.NoError(t, err)
	require.Equal(t, ProtocolVersion, decoded.Version)
	require.Equal(t, "r1", decoded.ID)
	require.Equal(t, OpOpenService, decoded.Op)
	require.Equal(t, ServiceSSH, decoded.Service)
}

func TestReadLineRejectsOversizedLine(t *testing.T) {
	oversized := bytes.Repeat([]byte("a"), MaxLineBytes+100)
	oversized = append(oversized, '\n')

	r := bufio.NewReaderSize(bytes.NewReader(oversized), MaxLineBytes+1)
	_, err := ReadLine(r)
	require.Error(t, err)
	require.True(t, ErrInvalidData(err))
}

func TestDecodeOpenServiceOptionsDefaultsToInteractive(t *testing.T) {
	opts, err := DecodeOpenServiceOptions(nil)
	require.NoError(t, err)
	require.Equal(t, SerialAccessInteractive, opts.Access)

	opts, err = DecodeOpenServiceOptions([]byte(`{"access":"watch"}`))
	require.NoError(t, err)
	require.Equal(t, SerialAccessWatch, opts.Access)
}

func TestErrCodeRemediationIsNonEmpty(t *testing.T) {
	for _, c := range []ErrCode{
		ErrUnsupportedVersion, ErrUnsupportedRequest, ErrUnknownService,
		ErrServiceUnavailable, ErrInstanceNotRunning, ErrPermissionDenied, ErrInternal,
	} {
		require.NotEmpty(t, c.Remediation())
	}
}

func TestResponseBuilders(t *testing.T) {
	opened := Opened("r1")
	require.Equal(t, StatusOpened, opened.Status)

	starting := Starting("r1", 1, 5, 2)
	require.Equal(t, StatusStarting, starting.Status)
	require.Equal(t, 5, starting.MaxAttempts)

	svcs := ServicesResponse("r1", []ServiceDescriptor{{Name: ServiceSSH}})
	require.Equal(t, StatusServices, svcs.Status)
	require.Len(t, svcs.Services, 1)

	errResp := ErrorResponse("r1", ErrUnknownService, "no such service")
	require.Equal(t, StatusError, errResp.Status)
	require.Equal(t, ErrUnknownService, errResp.Code)
}

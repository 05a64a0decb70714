package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	cases := []struct {
		conn     OtlpConnConfig
		expected string
		endpoint string
	}{
		{OtlpConnConfig{}, transportNone, ""},
		{OtlpConnConfig{HttpEndpoint: "http://localhost:4318"}, transportHttp, "http://localhost:4318"},
		{OtlpConnConfig{GrpcEndpoint: "http://localhost:4317"}, transportGrpc, "http://localhost:4317"},
		{
			OtlpConnConfig{GrpcEndpoint: "http://localhost:4317", HttpEndpoint: "http://localhost:4318"},
			transportGrpc,
			"http://localhost:4317",
		},
	}
	for _, test := range cases {
		require.Equal(t, test.expected, test.conn.transport())
		require.Equal(t, test.endpoint, test.conn.endpoint())
	}
}

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "test:telemetry", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

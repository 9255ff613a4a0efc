package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/septivank/conso-metering/metering"
	"github.com/septivank/conso-metering/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyBody = `{
	"usage_point_id": "12345678901234",
	"start": "2024-01-01",
	"end": "2024-01-04",
	"quality": "BRUT",
	"reading_type": {"unit": "Wh", "measurement_kind": "energy", "aggregate": "sum", "measuring_period": "P1D"},
	"interval_reading": [
		{"value": "11776", "date": "2024-01-01"},
		{"value": "14401", "date": "2024-01-02"},
		{"value": "12820", "date": "2024-01-03"}
	]
}`

func signToken(t *testing.T, sub any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tok := signToken(t, []string{"12345678901234", "98765432109876"})
	c, err := New(tok, append([]Option{WithBaseURL(srv.URL)}, opts...)...)
	require.NoError(t, err)
	return c, tok
}

func TestFetch_RequestShape(t *testing.T) {
	var got *http.Request
	c, tok := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(dailyBody))
	}, WithUserAgent("test-agent"))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	_, err := c.DailyConsumption(context.Background(), start, end)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/daily_consumption", got.URL.Path)
	assert.Equal(t, "12345678901234", got.URL.Query().Get("prm"))
	assert.Equal(t, "2024-01-01", got.URL.Query().Get("start"))
	assert.Equal(t, "2024-01-04", got.URL.Query().Get("end"))
	assert.Equal(t, "Bearer "+tok, got.Header.Get("Authorization"))
	assert.Equal(t, "test-agent", got.Header.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
}

func TestDailyConsumption(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(dailyBody))
	})

	data, err := c.DailyConsumption(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "12345678901234", data.UsagePointID)
	assert.Equal(t, 3, data.Len())
	assert.Equal(t, int64(38997), data.Total())
	assert.Equal(t, 12999.0, data.Average())
}

func TestEndpointsHitTheirPaths(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(dailyBody))
	})
	ctx := context.Background()

	calls := []func(context.Context, time.Time, time.Time) (*metering.MeteringData, error){
		c.DailyConsumption,
		c.ConsumptionLoadCurve,
		c.MaxPower,
		c.DailyProduction,
		c.ProductionLoadCurve,
	}
	for _, call := range calls {
		_, err := call(ctx, time.Time{}, time.Time{})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"/daily_consumption",
		"/consumption_load_curve",
		"/consumption_max_power",
		"/daily_production",
		"/production_load_curve",
	}, paths)
}

func TestLoadCurve(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"usage_point_id": "12345678901234",
			"start": "2024-01-01",
			"end": "2024-01-02",
			"quality": "BRUT",
			"reading_type": {"unit": "W", "measurement_kind": "power", "aggregate": "average"},
			"interval_reading": [
				{"value": "450", "date": "2024-01-01 00:00:00", "interval_length": "PT30M"},
				{"value": "380", "date": "2024-01-01T00:30:00", "interval_length": "PT30M"}
			]
		}`))
	})

	data, err := c.ConsumptionLoadCurve(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	readings := data.Readings()
	require.Len(t, readings, 2)
	assert.False(t, readings[0].Date.IsDateOnly())
	assert.Equal(t, 30, readings[1].Date.Time().Minute())
	assert.Equal(t, metering.Power, data.ReadingType.MeasurementKind)
}

func TestMaxPowerMeasureType(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"usage_point_id": "12345678901234",
			"start": "2024-01-01",
			"end": "2024-01-02",
			"quality": "BRUT",
			"reading_type": {"unit": "VA", "measurement_kind": "power", "aggregate": "maximum"},
			"interval_reading": [{"value": "6200", "date": "2024-01-01", "measure_type": "B"}]
		}`))
	})

	data, err := c.MaxPower(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	readings := data.Readings()
	require.Len(t, readings, 1)
	require.NotNil(t, readings[0].MeasureType)
	assert.Equal(t, "B", *readings[0].MeasureType)
}

func TestFetch_ErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    error
		message string
	}{
		{"bad request with error key", http.StatusBadRequest, `{"error": "invalid date range"}`, ErrBadRequest, "invalid date range"},
		{"unauthorized with message key", http.StatusUnauthorized, `{"message": "token expired"}`, ErrAuthentication, "token expired"},
		{"unauthorized empty", http.StatusUnauthorized, ``, ErrAuthentication, "Authentication failed"},
		{"server error plain text", http.StatusBadGateway, `upstream down`, ErrServer, "upstream down"},
		{"server error json without message", http.StatusInternalServerError, `{"code": 7}`, ErrServer, "Server error"},
		{"teapot", http.StatusTeapot, `{"error": "nope"}`, ErrAPI, "nope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := c.DailyConsumption(context.Background(), time.Time{}, time.Time{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.message, apiErr.Message)
			assert.Contains(t, err.Error(), "API error")
		})
	}
}

func TestFetch_TeapotIsNotSpecialised(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	_, err := c.DailyConsumption(context.Background(), time.Time{}, time.Time{})
	assert.False(t, errors.Is(err, ErrBadRequest))
	assert.False(t, errors.Is(err, ErrAuthentication))
	assert.False(t, errors.Is(err, ErrServer))
	assert.Equal(t, "API error 418", err.Error())
}

func TestFetch_MalformedSuccessBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        "<html>oops</html>",
		"missing reading": `{"usage_point_id": "1", "start": "2024-01-01", "end": "2024-01-02", "quality": "BRUT"}`,
		"bad value":       `{"usage_point_id": "1", "start": "2024-01-01", "end": "2024-01-02", "quality": "BRUT", "reading_type": {"unit": "Wh", "measurement_kind": "energy", "aggregate": "sum"}, "interval_reading": [{"value": "x", "date": "2024-01-01"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})

			data, err := c.DailyConsumption(context.Background(), time.Time{}, time.Time{})
			assert.Nil(t, data)
			assert.True(t, errors.Is(err, metering.ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestFetch_DefaultDates(t *testing.T) {
	var start, end string
	fixed := time.Date(2024, 3, 15, 18, 45, 0, 0, time.UTC)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		start = r.URL.Query().Get("start")
		end = r.URL.Query().Get("end")
		w.Write([]byte(dailyBody))
	}, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	_, err := c.DailyConsumption(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", start)
	assert.Equal(t, "2024-03-15", end)

	_, err = c.DailyConsumption(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", start)
	assert.Equal(t, "2024-03-15", end)

	_, err = c.DailyConsumption(ctx, time.Time{}, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", start)
	assert.Equal(t, "2024-03-10", end)
}

func TestFetch_RejectsUnknownDataType(t *testing.T) {
	hits := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(dailyBody))
	})

	for _, dt := range []metering.DataType{"weekly_consumption", "", "../admin", "daily_consumption?x=1"} {
		data, err := c.Fetch(context.Background(), dt, time.Time{}, time.Time{})
		assert.Nil(t, data)
		assert.True(t, errors.Is(err, metering.ErrUnknownDataType), "data type %q: %v", dt, err)
	}
	assert.Zero(t, hits)
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestWithRegisterer_RecordsOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/daily_production" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(dailyBody))
	}
	first, _ := newTestClient(t, handler, WithRegisterer(reg))
	second, _ := newTestClient(t, handler, WithRegisterer(reg))
	ctx := context.Background()

	_, err := first.DailyConsumption(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = second.DailyConsumption(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = second.DailyProduction(ctx, time.Time{}, time.Time{})
	require.Error(t, err)

	requests := findFamily(t, reg, "conso_requests_total")
	require.NotNil(t, requests)
	counts := map[string]float64{}
	for _, m := range requests.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		counts[labels["data_type"]+"/"+labels["status"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"daily_consumption/200": 2,
		"daily_production/401":  1,
	}, counts)
	assert.NotNil(t, findFamily(t, reg, "conso_request_duration_seconds"))
}

func TestWithRegisterer_NilSkipsRegistration(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dailyBody))
	}, WithRegisterer(nil))

	_, err := c.DailyConsumption(context.Background(), time.Time{}, time.Time{})
	assert.NoError(t, err)
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(signToken(t, "12345678901234"), WithBaseURL(url), WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = c.DailyConsumption(context.Background(), time.Time{}, time.Time{})
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestNew_SelectsPRM(t *testing.T) {
	c, err := New(signToken(t, []string{"12345678901234", "98765432109876"}), WithPRM("98765432109876"))
	require.NoError(t, err)

	assert.Equal(t, "98765432109876", c.PRM())
	assert.Equal(t, []string{"12345678901234", "98765432109876"}, c.PRMs())
}

func TestNew_EmptyPRMSelectsFirst(t *testing.T) {
	c, err := New(signToken(t, []string{"12345678901234", "98765432109876"}), WithPRM(""))
	require.NoError(t, err)
	assert.Equal(t, "12345678901234", c.PRM())
}

func TestNew_TokenErrors(t *testing.T) {
	_, err := New("garbage")
	assert.True(t, errors.Is(err, token.ErrInvalidToken))

	_, err = New(signToken(t, "12345678901234"), WithPRM("00000000000000"))
	assert.True(t, errors.Is(err, token.ErrScopeAccessDenied))
}

func TestNew_NoRequestOnTokenFailure(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	_, err := New("garbage", WithBaseURL(srv.URL))
	require.Error(t, err)
	assert.Zero(t, hits)
}

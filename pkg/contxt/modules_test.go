package contxt_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/stretchr/testify/require"
)

func TestFacilities(t *testing.T) {
	t.Parallel()

	t.Run("list", func(t *testing.T) {
		t.Parallel()

		srv, rec := newRecordingServer(t, http.StatusOK, `[{"id":1,"name":"North","organization_id":"org-1","tags":[{"id":3,"facility_id":1,"name":"cold-storage"}]}]`)
		facilities := contxt.NewFacilities(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceFacilities, ClientID: "B", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

		got, err := facilities.List(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "North", got[0].Name)
		require.Equal(t, "cold-storage", got[0].Tags[0].Name)
		require.Equal(t, "/v1/facilities", rec.all()[0].Path)
	})

	t.Run("create validates before sending", func(t *testing.T) {
		t.Parallel()

		srv, rec := newRecordingServer(t, http.StatusOK, `{}`)
		facilities := contxt.NewFacilities(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceFacilities, ClientID: "B", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

		_, err := facilities.Create(t.Context(), contxt.Facility{Name: "North", OrganizationID: "org-1"})

		var valErr *contxt.ValidationError
		require.ErrorAs(t, err, &valErr)
		require.Equal(t, "timezone", valErr.Field)
		require.Empty(t, rec.all())
	})
}

func TestAssets(t *testing.T) {
	t.Parallel()

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()

		srv, rec := newRecordingServer(t, http.StatusOK, `{}`)
		assets := contxt.NewAssets(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceFacilities, ClientID: "B", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

		var valErr *contxt.ValidationError
		_, err := assets.Get(t.Context(), "")
		require.ErrorAs(t, err, &valErr)
		require.Equal(t, "asset id", valErr.Field)
		require.ErrorAs(t, assets.Delete(t.Context(), ""), &valErr)
		require.ErrorAs(t, assets.Update(t.Context(), "", contxt.AssetUpdate{}), &valErr)
		require.Empty(t, rec.all())
	})

	t.Run("paginated list", func(t *testing.T) {
		t.Parallel()

		srv, rec := newRecordingServer(t, http.StatusOK, `{"_metadata":{"count":12,"limit":5,"offset":5},"records":[{"id":"a-1","label":"Boiler","asset_type_id":"t-1","organization_id":"org-1"}]}`)
		assets := contxt.NewAssets(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceFacilities, ClientID: "B", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

		page, err := assets.ListByOrganization(t.Context(), "org-1", contxt.PaginationOptions{Limit: 5, Offset: 5})
		require.NoError(t, err)
		require.Equal(t, 12, page.Meta.Count)
		require.Equal(t, "Boiler", page.Records[0].Label)

		req := rec.all()[0]
		require.Equal(t, "/v1/organizations/org-1/assets", req.Path)
		require.Equal(t, "5", req.Query.Get("limit"))
		require.Equal(t, "5", req.Query.Get("offset"))
	})
}

func TestHealthReport(t *testing.T) {
	t.Parallel()

	srv, rec := newRecordingServer(t, http.StatusNoContent, "")
	health := contxt.NewHealth(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceHealth, ClientID: "H", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

	require.NoError(t, health.Report(t.Context(), "a-1", contxt.HealthReport{Status: contxt.HealthStatusHealthy}))

	var valErr *contxt.ValidationError
	require.ErrorAs(t, health.Report(t.Context(), "a-1", contxt.HealthReport{Status: "meh"}), &valErr)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	require.Equal(t, "/v1/assets/a-1/health", reqs[0].Path)

	var body contxt.HealthReport
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &body))
	require.Equal(t, contxt.HealthStatusHealthy, body.Status)
	require.WithinDuration(t, time.Now(), body.Timestamp, time.Minute)
}

func TestCoordinatorValidation(t *testing.T) {
	t.Parallel()

	coordinator := contxt.NewCoordinator(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceCoordinator, ClientID: "C", Host: "http://127.0.0.1:1"}, &stubAuth{token: "t"}, nil))

	var valErr *contxt.ValidationError
	_, err := coordinator.GetOrganization(t.Context(), "")
	require.ErrorAs(t, err, &valErr)
	_, err = coordinator.GetUser(t.Context(), "")
	require.ErrorAs(t, err, &valErr)
}

func TestNionicQuery(t *testing.T) {
	t.Parallel()

	t.Run("decodes data", func(t *testing.T) {
		t.Parallel()

		srv, rec := newRecordingServer(t, http.StatusOK, `{"data":{"facility":{"name":"North"}}}`)
		nionic := contxt.NewNionic(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceNionic, ClientID: "N", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

		var out struct {
			Facility struct {
				Name string `json:"name"`
			} `json:"facility"`
		}
		err := nionic.Query(t.Context(), `query($id: Int!) { facility(id: $id) { name } }`, map[string]any{"id": 1}, &out)
		require.NoError(t, err)
		require.Equal(t, "North", out.Facility.Name)

		req := rec.all()[0]
		require.Equal(t, "/graphql", req.Path)
		require.Contains(t, req.Body, `"variables":{"id":1}`)
	})

	t.Run("graphql errors", func(t *testing.T) {
		t.Parallel()

		srv, _ := newRecordingServer(t, http.StatusOK, `{"data":null,"errors":[{"message":"no such field"}]}`)
		nionic := contxt.NewNionic(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceNionic, ClientID: "N", Host: srv.URL}, &stubAuth{token: "t"}, srv.Client()))

		err := nionic.Query(t.Context(), `{ nope }`, nil, nil)

		var gqlErrs contxt.GraphQLErrors
		require.ErrorAs(t, err, &gqlErrs)
		require.Equal(t, "no such field", gqlErrs[0].Message)
	})

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()

		nionic := contxt.NewNionic(contxt.NewRequestClient(contxt.Audience{Name: contxt.AudienceNionic, Host: "http://127.0.0.1:1"}, &stubAuth{}, nil))

		var valErr *contxt.ValidationError
		require.ErrorAs(t, nionic.Query(t.Context(), "  ", nil, nil), &valErr)
	})
}

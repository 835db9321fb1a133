// SPDX-License-Identifier: GPL-3.0-or-later

package svcplane

import (
	"net/url"
	"testing"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/eid"
	"github.com/dtn7x/bpa/service"
)

func testID(t *testing.T, source string) bpv7.BundleID {
	t.Helper()
	return bpv7.BundleID{
		SourceNode: eid.MustParse(source),
		Timestamp:  bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0),
	}
}

func TestRouterDispatchMatchesRegisteredPattern(t *testing.T) {
	router := NewRouter()

	var gotVars map[string]string
	var gotReason admin.StatusReportReason
	router.Handle("/sources/{source}/status", func(vars map[string]string, _ bpv7.BundleID, _ service.StatusKind, reason admin.StatusReportReason, _ bpv7.DtnTime) {
		gotVars = vars
		gotReason = reason
	})

	id := testID(t, "dtn://gumo/")
	ok := router.Dispatch("/sources/"+url.PathEscape(id.SourceNode.String())+"/status", id, service.StatusDelivered, admin.NoInformation, bpv7.DtnTimeNow())
	if !ok {
		t.Fatal("expected Dispatch to find a matching handler")
	}
	if gotReason != admin.NoInformation {
		t.Fatalf("unexpected reason delivered: %v", gotReason)
	}
	_ = gotVars
}

func TestRouterDispatchNoMatchReturnsFalse(t *testing.T) {
	router := NewRouter()
	id := testID(t, "dtn://gumo/")

	if router.Dispatch("/unregistered/path", id, service.StatusDelivered, admin.NoInformation, bpv7.DtnTimeNow()) {
		t.Fatal("expected Dispatch to report no match")
	}
}

func TestServiceAdapterRoutesByBundleSource(t *testing.T) {
	router := NewRouter()
	delivered := make(chan admin.StatusReportReason, 1)
	router.Handle("/sources/{source}/status", func(_ map[string]string, _ bpv7.BundleID, _ service.StatusKind, reason admin.StatusReportReason, _ bpv7.DtnTime) {
		delivered <- reason
	})

	adapter := NewServiceAdapter(router)
	id := testID(t, "dtn://gumo/")
	adapter.OnStatusNotify(id, service.StatusForwarded, admin.ForwardUnidirectionalLink, bpv7.DtnTimeNow())

	select {
	case reason := <-delivered:
		if reason != admin.ForwardUnidirectionalLink {
			t.Fatalf("unexpected reason: %v", reason)
		}
	default:
		t.Fatal("expected OnStatusNotify to dispatch synchronously to the registered handler")
	}
}

func TestRouterHandleDuplicatePatternPanics(t *testing.T) {
	router := NewRouter()
	router.Handle("/dup", func(map[string]string, bpv7.BundleID, service.StatusKind, admin.StatusReportReason, bpv7.DtnTime) {})

	defer func() {
		if recover() == nil {
			t.Fatal("expected a duplicate pattern registration to panic")
		}
	}()
	router.Handle("/dup", func(map[string]string, bpv7.BundleID, service.StatusKind, admin.StatusReportReason, bpv7.DtnTime) {})
}

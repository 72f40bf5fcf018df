package api

import "testing"

func TestClientMarketFilter(t *testing.T) {
	t.Parallel()

	c := &Client{}
	if !c.wants("0:1") {
		t.Fatal("a client with no filter must receive every market")
	}
	if !c.wants("") {
		t.Fatal("market-less frames must always pass")
	}

	c.setFilter([]string{"0:1", "0:2"})
	if !c.wants("0:1") || !c.wants("0:2") {
		t.Fatal("filtered-in markets must pass")
	}
	if c.wants("0:9") {
		t.Fatal("markets outside the filter must be suppressed")
	}
	if !c.wants("") {
		t.Fatal("market-less frames must pass a configured filter too")
	}

	c.setFilter(nil)
	if !c.wants("0:9") {
		t.Fatal("clearing the filter must readmit every market")
	}
}

func TestClientOfferCountsConsecutiveDrops(t *testing.T) {
	t.Parallel()

	c := &Client{send: make(chan []byte, 1)}
	if !c.offer([]byte("a")) {
		t.Fatal("first frame fits the buffer")
	}
	for i := 0; i < 3; i++ {
		if c.offer([]byte("b")) {
			t.Fatal("expected a drop with the buffer full")
		}
	}
	if c.drops != 3 {
		t.Fatalf("drops = %d, want 3", c.drops)
	}

	<-c.send
	if !c.offer([]byte("c")) {
		t.Fatal("expected delivery once the buffer drains")
	}
	if c.drops != 0 {
		t.Fatalf("drops = %d, want reset to 0 after a delivery", c.drops)
	}
}

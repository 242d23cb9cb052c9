package address

import "testing"

func TestKeyedContentAddressDeterministic(t *testing.T) {
	p1, _ := NewPartialHashKey()
	p2, _ := NewPartialHashKey()
	key, err := DeriveHashKey(p1, p2)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello world")
	a1, err := KeyedContentAddress(data, &key)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := KeyedContentAddress(data, &key)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatalf("same plaintext and key produced different addresses")
	}
}

func TestDistinctPart2ProducesDistinctAddresses(t *testing.T) {
	part1, _ := NewPartialHashKey()
	part2a, _ := NewPartialHashKey()
	part2b, _ := NewPartialHashKey()

	keyA, _ := DeriveHashKey(part1, part2a)
	keyB, _ := DeriveHashKey(part1, part2b)

	data := []byte("identical plaintext across two clients")
	addrA, _ := KeyedContentAddress(data, &keyA)
	addrB, _ := KeyedContentAddress(data, &keyB)
	if addrA == addrB {
		t.Fatalf("distinct hash_key.part2 must produce distinct addresses for identical plaintext")
	}
}

func TestTreeBlockAddressUnkeyedAndDeterministic(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	a1, err := TreeBlockAddress(data)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := TreeBlockAddress(data)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatalf("tree block address not deterministic")
	}
}

func TestLeafVsInternalAddressesDiffer(t *testing.T) {
	p1, _ := NewPartialHashKey()
	p2, _ := NewPartialHashKey()
	key, _ := DeriveHashKey(p1, p2)
	data := []byte("same bytes")
	leaf, _ := KeyedContentAddress(data, &key)
	internal, _ := TreeBlockAddress(data)
	if leaf == internal {
		t.Fatalf("keyed leaf address collided with unkeyed internal address (statistically impossible, check construction)")
	}
}

package storage

import (
	"fmt"
	"testing"
	"time"
)

func BenchmarkKeyspaceSetGet(b *testing.B) {
	ks := New()
	value := []byte("value")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key%d", i%1024)
		ks.Set(key, value, nil)
		if _, _, err := ks.GetString(key); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkKeyspacePushPop(b *testing.B) {
	ks := New()
	value := []byte("job")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ks.Push("queue", false, false, value); err != nil {
			b.Fatal(err)
		}
		if _, err := ks.Pop("queue", true, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkZSetRangeByScore(b *testing.B) {
	for _, size := range []int{100, 10000} {
		b.Run(fmt.Sprintf("members_%d", size), func(b *testing.B) {
			ks := New()
			members := make([]ZSetMember, size)
			for i := range members {
				members[i] = ZSetMember{Member: fmt.Sprintf("m%d", i), Score: float64(i)}
			}
			if _, err := ks.ZAdd("z", members, ZAddFlags{}); err != nil {
				b.Fatal(err)
			}
			min := ScoreBound{Value: float64(size / 2)}
			max := ScoreBound{Value: float64(size/2 + 10)}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := ks.ZRangeByScore("z", min, max, false, 0, -1); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkKeysPattern(b *testing.B) {
	ks := New()
	future := time.Now().Add(time.Hour)
	for i := 0; i < 10000; i++ {
		ks.Set(fmt.Sprintf("user:%d:name", i), []byte("x"), &future)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ks.Keys("user:1?:*")
	}
}

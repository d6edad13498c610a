package ur

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
)

var ErrInvalidBytewords = errors.New("invalid bytewords")

const bytewordList = "ableacidalsoapexaquaarchatomauntawayaxisbackbaldbarnbeltbetabiasbluebodybragbrewbulbbuzzcalmcashcatschefcityclawcodecolacookcostcruxcurlcuspcyandarkdatadaysdelidicedietdoordowndrawdropdrumdulldutyeacheasyechoedgeepicevenexamexiteyesfactfairfernfigsfilmfishfizzflapflewfluxfoxyfreefrogfuelfundgalagamegeargemsgiftgirlglowgoodgraygrimgurugushgyrohalfhanghardhawkheathelphighhillholyhopehornhutsicedideaidleinchinkyintoirisironitemjadejazzjoinjoltjowljudojugsjumpjunkjurykeepkenokeptkeyskickkilnkingkitekiwiknoblamblavalazyleaflegsliarlimplionlistlogoloudloveluaulucklungmainmanymathmazememomenumeowmildmintmissmonknailnavyneednewsnextnoonnotenumbobeyoboeomitonyxopenovalowlspaidpartpeckplaypluspoempoolposepuffpumapurrquadquizraceramprealredorichroadrockroofrubyruinrunsrustsafesagascarsetssilkskewslotsoapsolosongstubsurfswantacotasktaxitenttiedtimetinytoiltombtoystriptunatwinuglyundouniturgeuservastveryvetovialvibeviewvisavoidvowswallwandwarmwaspwavewaxywebswhatwhenwhizwolfworkyankyawnyellyogayurtzapszerozestzinczonezoom"

// minimal maps the two-letter minimal form (first and last letter of each
// word) back to its byte value.
var minimal = buildMinimal()

func buildMinimal() map[string]byte {
	m := make(map[string]byte, 256)
	for i := 0; i < 256; i++ {
		word := bytewordList[i*4 : i*4+4]
		m[string([]byte{word[0], word[3]})] = byte(i)
	}
	return m
}

// encodeMinimal renders data plus its CRC32 in minimal bytewords form.
func encodeMinimal(data []byte) string {
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(data))

	var sb strings.Builder
	sb.Grow((len(data) + 4) * 2)
	for _, b := range append(append([]byte(nil), data...), sum[:]...) {
		word := bytewordList[int(b)*4 : int(b)*4+4]
		sb.WriteByte(word[0])
		sb.WriteByte(word[3])
	}
	return sb.String()
}

// decodeMinimal reverses encodeMinimal and verifies the checksum.
func decodeMinimal(s string) ([]byte, error) {
	s = strings.ToLower(s)
	if len(s)%2 != 0 || len(s) < 10 {
		return nil, ErrInvalidBytewords
	}

	buf := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		b, ok := minimal[s[i:i+2]]
		if !ok {
			return nil, ErrInvalidBytewords
		}
		buf = append(buf, b)
	}

	body, sum := buf[:len(buf)-4], buf[len(buf)-4:]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(sum) {
		return nil, ErrInvalidBytewords
	}
	return body, nil
}

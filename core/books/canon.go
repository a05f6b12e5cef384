package books

// canon lists every book in canonical order with the abbreviations readers
// actually type. Ids are lowercase and space separated; numbered books carry
// their numeral in the id. Entries marked Base are the un-numbered names
// that only make sense behind a separate numeral token ("2 Sam 7").
var canon = []Entry{
	// Old Testament
	{ID: "genesis", Aliases: []string{"gen", "ge", "gn"}},
	{ID: "exodus", Aliases: []string{"exod", "exo", "ex"}},
	{ID: "leviticus", Aliases: []string{"lev", "lv"}},
	{ID: "numbers", Aliases: []string{"num", "numb", "nm"}},
	{ID: "deuteronomy", Aliases: []string{"deut", "deu", "dt"}},
	{ID: "joshua", Aliases: []string{"josh", "jos", "jsh"}},
	{ID: "judges", Aliases: []string{"judg", "jdg", "jdgs"}},
	{ID: "ruth", Aliases: []string{"rth", "ru"}},
	{ID: "1 samuel", Aliases: []string{"1 sam", "1sam", "1 sa", "1sa", "1samuel"}},
	{ID: "2 samuel", Aliases: []string{"2 sam", "2sam", "2 sa", "2sa", "2samuel"}},
	{ID: "1 kings", Aliases: []string{"1 kgs", "1kgs", "1 ki", "1ki", "1kings"}},
	{ID: "2 kings", Aliases: []string{"2 kgs", "2kgs", "2 ki", "2ki", "2kings"}},
	{ID: "1 chronicles", Aliases: []string{"1 chron", "1chron", "1 chr", "1chr", "1chronicles"}},
	{ID: "2 chronicles", Aliases: []string{"2 chron", "2chron", "2 chr", "2chr", "2chronicles"}},
	{ID: "ezra", Aliases: []string{"ezr"}},
	{ID: "nehemiah", Aliases: []string{"neh"}},
	{ID: "esther", Aliases: []string{"esth", "est"}},
	{ID: "job", Aliases: []string{"jb"}},
	{ID: "psalms", Aliases: []string{"psalm", "psa", "psm", "pss", "ps"}},
	{ID: "proverbs", Aliases: []string{"prov", "prv", "pro"}},
	{ID: "ecclesiastes", Aliases: []string{"eccles", "eccl", "ecc", "qoh"}},
	{ID: "song of solomon", Aliases: []string{"song of songs", "canticles", "cant", "song", "sos"}},
	{ID: "isaiah", Aliases: []string{"isa"}},
	{ID: "jeremiah", Aliases: []string{"jer"}},
	{ID: "lamentations", Aliases: []string{"lam"}},
	{ID: "ezekiel", Aliases: []string{"ezek", "eze", "ezk"}},
	{ID: "daniel", Aliases: []string{"dan", "dn"}},
	{ID: "hosea", Aliases: []string{"hos"}},
	{ID: "joel"},
	{ID: "amos"},
	{ID: "obadiah", Aliases: []string{"obad", "oba"}},
	{ID: "jonah", Aliases: []string{"jon", "jnh"}},
	{ID: "micah", Aliases: []string{"mic"}},
	{ID: "nahum", Aliases: []string{"nah"}},
	{ID: "habakkuk", Aliases: []string{"hab"}},
	{ID: "zephaniah", Aliases: []string{"zeph", "zep"}},
	{ID: "haggai", Aliases: []string{"hag"}},
	{ID: "zechariah", Aliases: []string{"zech", "zec"}},
	{ID: "malachi", Aliases: []string{"mal"}},

	// New Testament
	{ID: "matthew", Aliases: []string{"matt", "mat", "mt"}},
	{ID: "mark", Aliases: []string{"mrk", "mk"}},
	{ID: "luke", Aliases: []string{"luk", "lk"}},
	{ID: "john", Aliases: []string{"joh", "jhn", "jn"}},
	{ID: "acts", Aliases: []string{"acts of the apostles"}},
	{ID: "romans", Aliases: []string{"rom", "rm"}},
	{ID: "1 corinthians", Aliases: []string{"1 cor", "1cor", "1 co", "1co", "1corinthians"}},
	{ID: "2 corinthians", Aliases: []string{"2 cor", "2cor", "2 co", "2co", "2corinthians"}},
	{ID: "galatians", Aliases: []string{"gal"}},
	{ID: "ephesians", Aliases: []string{"ephes", "eph"}},
	{ID: "philippians", Aliases: []string{"phil", "php"}},
	{ID: "colossians", Aliases: []string{"col"}},
	{ID: "1 thessalonians", Aliases: []string{"1 thess", "1thess", "1 thes", "1thes", "1 th", "1th", "1thessalonians"}},
	{ID: "2 thessalonians", Aliases: []string{"2 thess", "2thess", "2 thes", "2thes", "2 th", "2th", "2thessalonians"}},
	{ID: "1 timothy", Aliases: []string{"1 tim", "1tim", "1 ti", "1ti", "1timothy"}},
	{ID: "2 timothy", Aliases: []string{"2 tim", "2tim", "2 ti", "2ti", "2timothy"}},
	{ID: "titus", Aliases: []string{"tit"}},
	{ID: "philemon", Aliases: []string{"philem", "phlm", "phm"}},
	{ID: "hebrews", Aliases: []string{"heb"}},
	{ID: "james", Aliases: []string{"jas", "jm"}},
	{ID: "1 peter", Aliases: []string{"1 pet", "1pet", "1 pt", "1pt", "1peter"}},
	{ID: "2 peter", Aliases: []string{"2 pet", "2pet", "2 pt", "2pt", "2peter"}},
	{ID: "1 john", Aliases: []string{"1 jn", "1jn", "1 joh", "1joh", "1 jhn", "1jhn", "1john"}},
	{ID: "2 john", Aliases: []string{"2 jn", "2jn", "2 joh", "2joh", "2 jhn", "2jhn", "2john"}},
	{ID: "3 john", Aliases: []string{"3 jn", "3jn", "3 joh", "3joh", "3 jhn", "3jhn", "3john"}},
	{ID: "jude", Aliases: []string{"jud"}},
	{ID: "revelation", Aliases: []string{"revelations", "apocalypse", "rev"}},

	// Base names, completed by a numeral captured from the text.
	{ID: "samuel", Aliases: []string{"sam"}, Base: true},
	{ID: "kings", Aliases: []string{"kgs"}, Base: true},
	{ID: "chronicles", Aliases: []string{"chron", "chr"}, Base: true},
	{ID: "thessalonians", Aliases: []string{"thess", "thes"}, Base: true},
	{ID: "timothy", Aliases: []string{"tim"}, Base: true},
	{ID: "peter", Aliases: []string{"pet"}, Base: true},
}
